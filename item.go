package petpost

import (
	"fmt"

	"github.com/nyaruka/null/v3"
)

// ItemRef is the composite key identifying a single item record. The item id doubles as the
// key of the image object in blob storage.
type ItemRef struct {
	ItemID      string `json:"item_id"`
	SubmitterID string `json:"submitter_id"`
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s/%s", r.ItemID, r.SubmitterID)
}

// Item is a single postable entry in the collection. Label and Note are null when the
// submitter didn't provide them - sentinel values only exist at the store boundary.
type Item struct {
	ItemID      string      `json:"item_id"`
	SubmitterID string      `json:"submitter_id"`
	Posted      bool        `json:"posted"`
	Label       null.String `json:"label"`
	Note        null.String `json:"note"`
}

// Ref returns the key of this item
func (i *Item) Ref() ItemRef {
	return ItemRef{ItemID: i.ItemID, SubmitterID: i.SubmitterID}
}

// Post is what we hand to a publisher to put an item in front of the channel
type Post struct {
	ImageKey    string
	ImageBytes  []byte
	ContentType string
	Title       null.String
	Description null.String
	Author      string
}

// NewPost creates a post for the given item and its image
func NewPost(item *Item, contentType string, image []byte) *Post {
	return &Post{
		ImageKey:    item.ItemID,
		ImageBytes:  image,
		ContentType: contentType,
		Title:       item.Label,
		Description: item.Note,
		Author:      item.SubmitterID,
	}
}
