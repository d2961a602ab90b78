package vector

import (
	"fmt"
	"math"
	"strings"
)

// Metric is the similarity function an index was built with. It decides both whether
// query vectors are normalized and in which direction scores are ranked.
type Metric string

const (
	// MetricInnerProduct ranks by dot product, higher first. With unit-length vectors
	// this is cosine similarity.
	MetricInnerProduct Metric = "inner_product"
	// MetricEuclidean ranks by squared L2 distance, lower first.
	MetricEuclidean Metric = "euclidean"
)

// ParseMetric accepts the common spellings of the two supported metrics.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inner_product", "inner-product", "innerproduct", "ip", "dot", "cosine":
		return MetricInnerProduct, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	default:
		return "", fmt.Errorf("unknown metric %q (supported: inner_product, euclidean)", s)
	}
}

// String returns the metric name.
func (m Metric) String() string {
	return string(m)
}

// NormalizesQuery reports whether query vectors must be L2-normalized before search.
func (m Metric) NormalizesQuery() bool {
	return m == MetricInnerProduct
}

// Before reports whether score a ranks strictly before score b.
func (m Metric) Before(a, b float64) bool {
	if m == MetricEuclidean {
		return a < b
	}
	return a > b
}

// sentinel is the score FAISS reports for empty result slots.
func (m Metric) sentinel() float64 {
	if m == MetricEuclidean {
		return math.MaxFloat32
	}
	return -math.MaxFloat32
}
