package playercache

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strconv"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/baduk-client/internal/request"
)

var (
	ErrInvalidPlayerName = crerr.New("invalid player name")
	ErrInvalidID         = crerr.New("invalid player id")
	ErrInvalidField      = crerr.New("invalid player field")
	ErrNotFound          = crerr.New("player not found")
	ErrClosed            = crerr.New("player cache closed")
)

// NotFoundError is returned for an id the server reported missing. A provisional record
// is cached for ID before the error is delivered.
type NotFoundError struct {
	ID  int64
	Err error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("player %d not found: %v", e.ID, e.Err)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFoundDetector extracts the id named by a bulk lookup failure.
type NotFoundDetector func(err error) (id int64, ok bool)

var legacyNotFound = regexp.MustCompile(`Player (\d+) not found`)

type notFoundBody struct {
	PlayerID int64  `json:"player_id"`
	Error    string `json:"error"`
	Detail   string `json:"detail"`
}

// DetectNotFound reads a structured {"player_id": N} error body and falls back to the
// legacy "Player N not found" message.
func DetectNotFound(err error) (int64, bool) {
	if err == nil {
		return 0, false
	}

	var statusErr *request.StatusError
	if stderrors.As(err, &statusErr) {
		var body notFoundBody
		if decodeErr := statusErr.Decode(&body); decodeErr == nil {
			if body.PlayerID > 0 {
				return body.PlayerID, true
			}
			if id, ok := matchLegacyNotFound(body.Error); ok {
				return id, true
			}
			if id, ok := matchLegacyNotFound(body.Detail); ok {
				return id, true
			}
		}
		if id, ok := matchLegacyNotFound(string(statusErr.Body)); ok {
			return id, true
		}
	}
	return matchLegacyNotFound(err.Error())
}

func matchLegacyNotFound(text string) (int64, bool) {
	m := legacyNotFound.FindStringSubmatch(text)
	if len(m) != 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
