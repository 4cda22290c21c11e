package storage

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID prefixes identify the record kind.
const (
	ConversationPrefix = "conv_"
	SummaryPrefix      = "sum_"
	VideoScriptPrefix  = "vid_"
)

func newID(prefix string) (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return prefix + id.String(), nil
}

func NewConversationID() (string, error) { return newID(ConversationPrefix) }
func NewSummaryID() (string, error)      { return newID(SummaryPrefix) }
func NewVideoScriptID() (string, error)  { return newID(VideoScriptPrefix) }

// RecordKind names the record type an id refers to: "conversation", "summary",
// "video_script", or "" when the prefix is unknown.
func RecordKind(id string) string {
	switch {
	case strings.HasPrefix(id, ConversationPrefix):
		return "conversation"
	case strings.HasPrefix(id, SummaryPrefix):
		return "summary"
	case strings.HasPrefix(id, VideoScriptPrefix):
		return "video_script"
	}
	return ""
}

// IDTime extracts the creation time embedded in a prefixed ULID.
func IDTime(id string) (time.Time, bool) {
	i := strings.IndexByte(id, '_')
	u, err := ulid.ParseStrict(id[i+1:])
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}
