package domain

import (
	"errors"
	"strconv"
)

// RequestPending is the status stamped on every new queue entry. Transitions
// to played/skipped are owned by the DJ-side tooling.
const RequestPending = "pending"

// SongRequest is a single queue entry under /events/{id}/queue. Position is a
// best-effort append ordering: it is the queue child count observed
// immediately before the write, with no transactional guard, so two truly
// concurrent writes can share a position.
type SongRequest struct {
	Title          string  `json:"title"`
	Artist         string  `json:"artist"`
	Cover          string  `json:"cover"`
	RequesterEmail string  `json:"requesterEmail"`
	Status         string  `json:"status"`
	Timestamp      int64   `json:"timestamp"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	Position       int     `json:"position"`
}

// QueueMetadata is the key-value bag attached to a provider payment object.
// It carries everything needed to reconstruct a queue entry when the
// confirming webhook fires, without another round trip to the client.
type QueueMetadata struct {
	DJID           string `json:"djId"`
	EventID        string `json:"eventId"`
	Title          string `json:"title"`
	Artist         string `json:"artist"`
	Cover          string `json:"cover"`
	RequesterEmail string `json:"requesterEmail"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
}

var errBadAmount = errors.New("metadata amount is not a number")

// SongRequest converts replayed metadata into a queue entry. Status,
// timestamp and position are assigned by the queue writer, not here.
func (m QueueMetadata) SongRequest() (SongRequest, error) {
	amount, err := strconv.ParseFloat(m.Amount, 64)
	if err != nil {
		return SongRequest{}, errBadAmount
	}
	return SongRequest{
		Title:          m.Title,
		Artist:         m.Artist,
		Cover:          m.Cover,
		RequesterEmail: m.RequesterEmail,
		Amount:         amount,
		Currency:       m.Currency,
	}, nil
}

// Map flattens the metadata for providers that accept string bags only.
func (m QueueMetadata) Map() map[string]string {
	return map[string]string{
		"djId":           m.DJID,
		"eventId":        m.EventID,
		"title":          m.Title,
		"artist":         m.Artist,
		"cover":          m.Cover,
		"requesterEmail": m.RequesterEmail,
		"amount":         m.Amount,
		"currency":       m.Currency,
	}
}
