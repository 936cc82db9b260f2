package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// ErrorKind classifies venue failures for the retry transport.
type ErrorKind string

const (
	// KindNetwork covers connection failures and generic transport errors.
	KindNetwork ErrorKind = "network"
	// KindTimeout covers request timeouts.
	KindTimeout ErrorKind = "timeout"
	// KindInsufficientFunds is a business rejection; retrying cannot help.
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	// KindInvalidParams is a business rejection for malformed requests.
	KindInvalidParams ErrorKind = "invalid_params"
	// KindAPI is any other venue-reported business error.
	KindAPI ErrorKind = "api"
)

// VenueError wraps a failed venue call with its operation label and
// retry classification. Timeouts and network failures are retriable;
// business errors never are.
type VenueError struct {
	Op        string    // operation label, e.g. "fetch order book"
	Kind      ErrorKind
	Err       error
	Retriable bool
}

func (e *VenueError) Error() string {
	return e.Op + " [" + string(e.Kind) + "]: " + e.Err.Error()
}

func (e *VenueError) IsRetriable() bool {
	return e.Retriable
}

func (e *VenueError) Unwrap() error {
	return e.Err
}

// NewTransientVenueError creates a retriable venue error (network/timeout class).
func NewTransientVenueError(op string, kind ErrorKind, err error) *VenueError {
	return &VenueError{Op: op, Kind: kind, Err: err, Retriable: true}
}

// NewFatalVenueError creates a non-retriable venue error (business class).
func NewFatalVenueError(op string, kind ErrorKind, err error) *VenueError {
	return &VenueError{Op: op, Kind: kind, Err: err, Retriable: false}
}

// ErrorKindOf extracts the kind of a wrapped VenueError, or KindAPI.
func ErrorKindOf(err error) ErrorKind {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindAPI
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrPriceUnavailable is returned when no source yields a positive
	// reference price. Callers skip the grid that tick, never crash.
	ErrPriceUnavailable = errors.New("reference price unavailable")

	// ErrMarketNotFound is returned when the configured trading pair does
	// not exist on the venue. Fatal at startup.
	ErrMarketNotFound = errors.New("market not found")

	// ErrOrderNotFound is returned when a fetched order id is unknown to the venue.
	ErrOrderNotFound = errors.New("order not found")
)
