package execution

// ValueKind distinguishes scalar metric values from series.
type ValueKind string

const (
	ValueScalar ValueKind = "scalar"
	ValueSeries ValueKind = "series"
)

// MetricValue is one value extracted from a metric bundle. Scalars set Value;
// series set Values together with their Index.
type MetricValue struct {
	Kind       ValueKind
	Dimensions map[string]string
	Value      float64
	Values     []float64
	Index      []string
	IndexName  string
	Attributes map[string]string
}

// OutputType classifies files registered from an output bundle.
type OutputType string

const (
	OutputPlot OutputType = "plot"
	OutputData OutputType = "data"
	OutputHTML OutputType = "html"
)

// Output is a file produced by an execution and relocated with its results.
type Output struct {
	Type        OutputType
	ShortName   string
	Filename    string
	LongName    string
	Description string
}
