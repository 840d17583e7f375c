package telegram

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// PublishError wraps a failed channel delivery. Structural errors mean
// Telegram rejected the request itself (bad photo URL, unparsable HTML) and
// retrying the same post cannot succeed.
type PublishError struct {
	Structural bool
	Err        error
}

func (e *PublishError) Error() string {
	kind := "transient"
	if e.Structural {
		kind = "structural"
	}
	return fmt.Sprintf("telegram publish (%s): %v", kind, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

func (e *PublishError) IsStructural() bool { return e.Structural }

// classify wraps err in a PublishError. Bad Request (400) replies are
// structural; everything else (timeouts, 429, 5xx) is transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	return &PublishError{Structural: badRequest(err), Err: err}
}

// badRequest reports a 400 reply. telebot returns *tele.Error only for
// descriptions it knows; other replies come back as "telegram: <desc> (<code>)".
func badRequest(err error) bool {
	var te *tele.Error
	if errors.As(err, &te) {
		return te.Code == http.StatusBadRequest
	}
	msg := err.Error()
	return strings.HasPrefix(msg, "telegram: Bad Request:") || strings.HasSuffix(msg, "(400)")
}
