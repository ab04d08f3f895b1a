package changefeed

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
)

// Op identifies the kind of row change carried by an Event.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event is one row-change notification emitted by the data store
// gateway after a committed write. Delivery is at-least-once; consumers
// deduplicate on the row id they care about.
type Event struct {
	ID           string       `json:"id"`
	Table        string       `json:"table"`
	Op           string       `json:"op"`
	RowID        snowflake.ID `json:"row_id"`
	Ref          snowflake.ID `json:"ref,omitempty"`
	RestaurantID snowflake.ID `json:"restaurant_id"`
	At           time.Time    `json:"at"`
}

// NewEvent stamps a change event with a sortable unique id.
func NewEvent(table, op string, rowID, ref, restaurantID snowflake.ID) Event {
	return Event{
		ID:           ulid.Make().String(),
		Table:        table,
		Op:           op,
		RowID:        rowID,
		Ref:          ref,
		RestaurantID: restaurantID,
		At:           time.Now().UTC(),
	}
}

// RestaurantTopic is the feed key carrying session, order and item
// changes for one restaurant.
func RestaurantTopic(restaurantID snowflake.ID) string {
	return fmt.Sprintf("restaurant:%s", restaurantID.String())
}

// UserTopic is the personal feed key carrying inbox-row changes for one
// recipient within one restaurant.
func UserTopic(restaurantID, userID snowflake.ID) string {
	return fmt.Sprintf("user:%s:%s", restaurantID.String(), userID.String())
}
