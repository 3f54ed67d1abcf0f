// Package classify turns one HTTP exchange into breakpoint categories.
package classify

import (
	"strings"
	"time"
)

// Category names a body-marker class.
type Category string

const (
	CategoryRateLimited  Category = "rate_limited"
	CategoryStorageError Category = "storage_error"
)

// Marker maps a body substring to a category.
type Marker struct {
	Pattern  string
	Category Category
}

// DefaultMarkers lists the throttling and storage signatures the target's
// object store surfaces in error bodies.
var DefaultMarkers = []Marker{
	{Pattern: "SlowDown", Category: CategoryRateLimited},
	{Pattern: "ServiceUnavailable", Category: CategoryStorageError},
	{Pattern: "InternalError", Category: CategoryStorageError},
	{Pattern: "RequestTimeout", Category: CategoryStorageError},
	{Pattern: "NoSuchBucket", Category: CategoryStorageError},
	{Pattern: "AccessDenied", Category: CategoryStorageError},
	{Pattern: "S3Exception", Category: CategoryStorageError},
}

// Exchange is one completed request as seen by the driver.
type Exchange struct {
	Status   int
	Err      error
	Body     string
	Duration time.Duration
}

// Result holds the categories of an exchange. Exactly one of Success, Timeout
// and GenericError is set; RateLimited and StorageError are overlays and never
// both set.
type Result struct {
	Success      bool
	Timeout      bool
	GenericError bool
	RateLimited  bool
	StorageError bool
	Marker       string
}

// Error reports whether the exchange counts as a failed request.
func (r Result) Error() bool { return !r.Success }

// Classifier evaluates exchanges against an ordered marker list.
type Classifier struct {
	markers []Marker
}

// New returns a classifier. A nil markers slice selects DefaultMarkers.
func New(markers []Marker) *Classifier {
	if markers == nil {
		markers = DefaultMarkers
	}
	return &Classifier{markers: markers}
}

// Classify categorizes ex.
func (c *Classifier) Classify(ex Exchange) Result {
	var res Result
	switch {
	case ex.Err != nil || ex.Status == 0:
		res.Timeout = true
	case ex.Status == 200 || ex.Status == 201:
		res.Success = true
	default:
		res.GenericError = true
	}
	if ex.Body == "" {
		return res
	}
	// Rate-limit markers win over storage markers regardless of list order.
	if m, ok := c.match(ex.Body, CategoryRateLimited); ok {
		res.RateLimited = true
		res.Marker = m
		return res
	}
	if m, ok := c.match(ex.Body, CategoryStorageError); ok {
		res.StorageError = true
		res.Marker = m
	}
	return res
}

func (c *Classifier) match(body string, cat Category) (string, bool) {
	for _, m := range c.markers {
		if m.Category == cat && strings.Contains(body, m.Pattern) {
			return m.Pattern, true
		}
	}
	return "", false
}
