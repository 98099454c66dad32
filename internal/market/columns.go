package market

// Market columns read into observations, named after the training datasets.
const (
	ColOpen        = "open"
	ColHigh        = "high"
	ColLow         = "low"
	ColClose       = "close"
	ColVolumeFrom  = "volumefrom"
	ColMOM         = "MOM"
	ColRSI         = "RSI"
	ColHTDCPeriod  = "HT_DCPERIOD"
	ColEMA         = "EMA"
	ColWILLR       = "WILLR"
	ColBBandsUpper = "BBANDS_upper"
	ColPPO         = "PPO"
)

// FeatureColumns is the fixed order in which market features enter an observation.
var FeatureColumns = []string{
	ColOpen,
	ColHigh,
	ColLow,
	ColClose,
	ColVolumeFrom,
	ColMOM,
	ColRSI,
	ColHTDCPeriod,
	ColEMA,
	ColWILLR,
	ColBBandsUpper,
	ColPPO,
}
