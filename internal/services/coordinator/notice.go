package coordinator

import (
	"fmt"

	"github.com/LeonardoBeccarini/sensorlink/internal/model"
)

type NoticeKind string

const (
	NoticeBuffered       NoticeKind = "BUFFERED"
	NoticeNothingToSync  NoticeKind = "NOTHING_TO_SYNC"
	NoticeNoConnectivity NoticeKind = "NO_CONNECTIVITY"
	NoticeSyncStarted    NoticeKind = "SYNC_STARTED"
	NoticeSyncDone       NoticeKind = "SYNC_DONE"
)

// Notice is a user-visible message about where readings went.
type Notice struct {
	Kind    NoticeKind     `json:"kind"`
	Message string         `json:"message"`
	Reading *model.Reading `json:"reading,omitempty"`
	Count   int            `json:"count,omitempty"`
	Total   int            `json:"total,omitempty"`
}

type Notifier interface {
	Notify(Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

func bufferedNotice(r model.Reading, cause string) Notice {
	return Notice{Kind: NoticeBuffered, Message: cause + ", buffered locally", Reading: &r}
}

func doneNotice(synced, total int) Notice {
	return Notice{
		Kind:    NoticeSyncDone,
		Message: fmt.Sprintf("sync done: %d of %d pending readings uploaded", synced, total),
		Count:   synced,
		Total:   total,
	}
}
