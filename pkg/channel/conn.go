package channel

import "fmt"

// Conn is one live connection to the message bus. The production
// implementation wraps NATS; tests substitute fakes.
type Conn interface {
	// Subscribe registers a handler for a subject. Handlers for distinct
	// subjects run independently; per-subject delivery keeps bus order.
	Subscribe(subject string, handler func(data []byte)) (Subscription, error)

	// Publish sends a payload to a subject.
	Publish(subject string, data []byte) error

	// Closed is closed when the connection is lost, however that happens.
	Closed() <-chan struct{}

	// Close tears the connection down.
	Close()
}

// Subscription is one active subject registration.
type Subscription interface {
	Unsubscribe() error
}

// Dialer establishes a new Conn. Called once per connection attempt.
type Dialer func() (Conn, error)

// Subject layout. {scope} is the user identifier, or "*" when one consumer
// relays traffic for every user (the gateway bridge does this).
const (
	subjectResults   = "predictions.%s.results"
	subjectStatus    = "predictions.%s.status"
	subjectErrors    = "predictions.%s.errors"
	SubjectFeed      = "predictions.feed"
	SubjectHeartbeat = "predictions.heartbeat"
	subjectPredict   = "predict.%d"
)

// WildcardScope subscribes the per-user queues for all users at once.
const WildcardScope = "*"

func ResultsSubject(scope string) string { return fmt.Sprintf(subjectResults, scope) }
func StatusSubject(scope string) string  { return fmt.Sprintf(subjectStatus, scope) }
func ErrorsSubject(scope string) string  { return fmt.Sprintf(subjectErrors, scope) }

// PredictSubject is the outbound publish destination for one user's requests.
func PredictSubject(userID int) string { return fmt.Sprintf(subjectPredict, userID) }
