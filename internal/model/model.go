package model

import (
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/prometheus/model/labels"
	"github.com/prometheus/prometheus/util/strutil"
)

type ServiceKind int

const (
	Compute ServiceKind = iota
	ComputeAgent
	ManagedDatabase
)

// ServiceSpec is the per-service part of a metric query.
type ServiceSpec struct {
	Name          string
	Namespace     string
	DimensionKey  string
	QueryIDPrefix string
}

var serviceSpecs = map[ServiceKind]ServiceSpec{
	Compute: {
		Name:          "ec2",
		Namespace:     "AWS/EC2",
		DimensionKey:  "InstanceId",
		QueryIDPrefix: "q",
	},
	ComputeAgent: {
		Name:          "cwagent",
		Namespace:     "CWAgent",
		DimensionKey:  "InstanceId",
		QueryIDPrefix: "q",
	},
	ManagedDatabase: {
		Name:          "rds",
		Namespace:     "AWS/RDS",
		DimensionKey:  "DBInstanceIdentifier",
		QueryIDPrefix: "q",
	},
}

func (k ServiceKind) Spec() ServiceSpec {
	spec, ok := serviceSpecs[k]
	if !ok {
		panic(fmt.Sprintf("unknown service kind: %d", int(k)))
	}
	return spec
}

func (k ServiceKind) String() string {
	if spec, ok := serviceSpecs[k]; ok {
		return spec.Name
	}
	return fmt.Sprintf("ServiceKind(%d)", int(k))
}

func ParseServiceKind(s string) (ServiceKind, error) {
	for k, spec := range serviceSpecs {
		if spec.Name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidService, s)
}

type Statistic string

const (
	Average     Statistic = "Average"
	Minimum     Statistic = "Minimum"
	Maximum     Statistic = "Maximum"
	Sum         Statistic = "Sum"
	SampleCount Statistic = "SampleCount"
)

var statistics = []Statistic{Average, Minimum, Maximum, Sum, SampleCount}

func ParseStatistic(s string) (Statistic, error) {
	st := Statistic(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatistic, s)
	}
	return st, nil
}

func (s Statistic) Valid() bool {
	return slices.Contains(statistics, s)
}

type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (tr TimeRange) Validate() error {
	if !tr.Start.Before(tr.End) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidTimeRange, tr.Start.Format(time.RFC3339), tr.End.Format(time.RFC3339))
	}
	return nil
}

// QueryRequest is the aggregation shared by every query of a batch.
type QueryRequest struct {
	Range     TimeRange
	Period    int32
	Statistic Statistic
	// Unit is optional; empty lets CloudWatch pick the unit the metric was published with.
	Unit      types.StandardUnit
}

func (r QueryRequest) Validate() error {
	if r.Period <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPeriod, r.Period)
	}
	if !r.Statistic.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatistic, r.Statistic)
	}
	if r.Unit != "" && !slices.Contains(r.Unit.Values(), r.Unit) {
		return fmt.Errorf("%w: %q", ErrInvalidUnit, r.Unit)
	}
	return r.Range.Validate()
}

type MetricDescriptor struct {
	Namespace      string
	MetricName     string
	DimensionKey   string
	DimensionValue string
}

func NewDescriptor(kind ServiceKind, metricName string, instanceID string) MetricDescriptor {
	spec := kind.Spec()
	return MetricDescriptor{
		Namespace:      spec.Namespace,
		MetricName:     metricName,
		DimensionKey:   spec.DimensionKey,
		DimensionValue: instanceID,
	}
}

func (d MetricDescriptor) Dimensions() []types.Dimension {
	name := d.DimensionKey
	value := d.DimensionValue
	return []types.Dimension{
		{
			Name:  &name,
			Value: &value,
		},
	}
}

type Query struct {
	ID         string
	Descriptor MetricDescriptor
	Request    QueryRequest
}

// Batch is an ordered set of queries sharing one QueryRequest.
type Batch struct {
	Queries []Query
}

func (b Batch) Len() int {
	return len(b.Queries)
}

// InstanceFor returns the instance id the query id was built for.
func (b Batch) InstanceFor(queryID string) (string, bool) {
	for _, q := range b.Queries {
		if q.ID == queryID {
			return q.Descriptor.DimensionValue, true
		}
	}
	return "", false
}

type Datapoint struct {
	Timestamp time.Time
	Value     float64
}

// Series is one metric result correlated back to its instance.
type Series struct {
	QueryID    string
	Descriptor MetricDescriptor
	Statistic  Statistic
	Label      string
	Status     string
	Datapoints []Datapoint
}

func (s Series) Labels() map[string]string {
	return map[string]string{
		"__name__":                strutil.SanitizeFullLabelName(s.Descriptor.MetricName),
		"MetricName":              s.Descriptor.MetricName,
		"Namespace":               s.Descriptor.Namespace,
		"Statistic":               string(s.Statistic),
		s.Descriptor.DimensionKey: s.Descriptor.DimensionValue,
	}
}

func (s Series) LabelSet() labels.Labels {
	return labels.FromMap(s.Labels())
}
