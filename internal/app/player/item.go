package player

import (
	"strings"
	"time"

	"github.com/ariavoice/audioplayer/internal/domain/audio"
	"github.com/ariavoice/audioplayer/internal/media"
)

// playItem is one Play directive's lifetime in the player: the parsed item
// plus its backend slot binding and any error cached while prebuffering.
type playItem struct {
	messageID     string
	behavior      audio.PlayBehavior
	item          audio.AudioItem
	player        media.Player // nil until a backend slot is bound
	sourceID      media.SourceID
	initialOffset time.Duration
	errorType     audio.ErrorType
	errorMsg      string // empty means no cached error
}

// sameContent reports whether id/rawURL name the same renderable content as
// this item. URLs are compared without their query strings: the service
// reissues identical content with fresh URL signatures when replacing the
// queue.
func (i *playItem) sameContent(id string, rawURL string) bool {
	return i.item.ID == id && stripQuery(i.item.Stream.URL) == stripQuery(rawURL)
}

func stripQuery(rawURL string) string {
	base, _, _ := strings.Cut(rawURL, "?")
	return base
}
