package catalog

import (
	"errors"
	"fmt"
)

// Item is one movie as returned by a catalog listing. Zero values mean
// "unknown": ReleaseDate "", Rating nil, PosterPath "".
type Item struct {
	ID          int64
	Title       string
	ReleaseDate string
	Rating      *float64
	Overview    string
	PosterPath  string
	GenreIDs    []int
}

// HasPoster reports whether the item carries a media reference.
func (it Item) HasPoster() bool { return it.PosterPath != "" }

// Category is a named catalog query.
type Category struct {
	Name     string
	Label    string
	Endpoint string
	Params   map[string]string
}

// ErrUnexpectedStatus is wrapped by FetchError for non-200 responses.
var ErrUnexpectedStatus = errors.New("unexpected status")

// FetchError reports a failed listing. Status is the HTTP status code, or 0
// when no response was received.
type FetchError struct {
	Category string
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("catalog %s: status %d: %v", e.Category, e.Status, e.Err)
	}
	return fmt.Sprintf("catalog %s: %v", e.Category, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
