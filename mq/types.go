package mq

import (
	"context"
	log "github.com/sirupsen/logrus"
	"github.com/superisaac/jsoff"
	"net/url"
)

type MQItem struct {
	Offset  string `json:"offset"`
	Brief   string `json:"brief"`
	Kind    string `json:"kind"`
	MsgData []byte `json:"msgdata"`
}

// Notify rebuilds the stored notify message.
func (self MQItem) Notify() *jsoff.NotifyMessage {
	msg, err := jsoff.ParseBytes(self.MsgData)
	if err != nil {
		log.Panicf("parse item bytes %s", err)
	}
	return msg.(*jsoff.NotifyMessage)
}

type MQChunk struct {
	Items      []MQItem `json:"items"`
	LastOffset string   `json:"lastoffset"`
}

type MQClient interface {
	// append an item to MQ, returning its offset
	Add(ctx context.Context, section string, ntf *jsoff.NotifyMessage) (string, error)

	// get a chunk following the given offset, an empty prevID captures
	// the current tail offset without items
	Chunk(ctx context.Context, section string, prevID string, count int64) (MQChunk, error)

	// get the tail chunk of queue, aka queue[-count:]
	Tail(ctx context.Context, section string, count int64) (MQChunk, error)

	// follow changes of the queue from its current tail
	Subscribe(rootctx context.Context, section string, output chan MQItem) error

	// follow changes of the queue after a known offset
	SubscribeFrom(rootctx context.Context, section string, prevID string, output chan MQItem) error

	// connectivity check
	Ping(ctx context.Context) error

	// release the underlying connection
	Close() error
}

func NewMQClient(mqurl *url.URL) MQClient {
	// TODO: more mq kinds than redis
	return NewRedisMQClient(mqurl)
}
