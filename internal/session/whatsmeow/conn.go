package whatsmeow

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/blastline/blastline/internal/session"
)

// jidCache maps phone digits to resolved JIDs so repeated sends to the same
// customer skip the network lookup.
var jidCache sync.Map

type jidCacheEntry struct {
	jid       types.JID
	expiresAt time.Time
}

const jidCacheTTL = 24 * time.Hour

// conn adapts one whatsmeow client to session.Conn. Lifecycle events from
// the client are translated into the session layer's close reasons.
type conn struct {
	log      *zap.Logger
	outletID string
	client   *whatsmeow.Client
	sink     session.EventSink
	qrCancel context.CancelFunc

	// closing suppresses the drop notification for disconnects we asked
	// for ourselves.
	closing atomic.Bool
}

func newConn(log *zap.Logger, outletID string, client *whatsmeow.Client, sink session.EventSink) *conn {
	return &conn{log: log, outletID: outletID, client: client, sink: sink}
}

func (c *conn) Connect() error {
	return c.client.Connect()
}

func (c *conn) Disconnect() {
	c.closing.Store(true)
	if c.qrCancel != nil {
		c.qrCancel()
	}
	c.client.Disconnect()
}

func (c *conn) Logout(ctx context.Context) error {
	c.closing.Store(true)
	return c.client.Logout(ctx)
}

func (c *conn) IsConnected() bool { return c.client.IsConnected() }
func (c *conn) IsLoggedIn() bool  { return c.client.IsLoggedIn() }

func (c *conn) ConnectedNumber() string {
	if c.client.Store == nil || c.client.Store.ID == nil {
		return ""
	}
	return c.client.Store.ID.User
}

func (c *conn) DeviceName() string {
	if c.client.Store == nil {
		return ""
	}
	if c.client.Store.BusinessName != "" {
		return c.client.Store.BusinessName
	}
	return c.client.Store.PushName
}

func (c *conn) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			if evt.Code != "" {
				c.emit(func() { c.sink.OnQR(c.outletID, evt.Code) })
			}
		case "success":
			c.log.Info("pairing completed")
		case "timeout":
			c.log.Warn("pairing timed out before the code was scanned")
		}
	}
}

func (c *conn) handleEvent(evt any) {
	switch e := evt.(type) {
	case *events.Connected:
		c.emit(func() { c.sink.OnConnected(c.outletID) })

	case *events.PairSuccess:
		c.log.Info("paired", zap.String("jid", e.ID.String()))

	case *events.StreamReplaced:
		c.log.Warn("stream replaced by another client")
		c.emit(func() { c.sink.OnClosed(c.outletID, session.CloseConflict) })

	case *events.LoggedOut:
		c.log.Warn("logged out remotely", zap.String("reason", e.Reason.String()))
		c.emit(func() { c.sink.OnClosed(c.outletID, session.CloseLoggedOut) })

	case *events.Disconnected:
		if c.closing.Load() {
			return
		}
		c.emit(func() { c.sink.OnClosed(c.outletID, session.CloseTransient) })

	case *events.ConnectFailure:
		c.log.Warn("connect failure", zap.String("reason", e.Reason.String()))
		if !c.closing.Load() {
			c.emit(func() { c.sink.OnClosed(c.outletID, session.CloseTransient) })
		}

	case *events.TemporaryBan:
		c.log.Error("account temporarily banned",
			zap.String("code", e.Code.String()),
			zap.Duration("expires", e.Expire))
	}
}

// emit shields the client's event goroutine from panics in sink handlers.
func (c *conn) emit(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic in session event handler", zap.Any("panic", r))
		}
	}()
	fn()
}

func (c *conn) SendText(ctx context.Context, number, text string) error {
	jid, err := c.resolveJID(ctx, number)
	if err != nil {
		return err
	}
	msg := &waE2E.Message{Conversation: proto.String(text)}
	_, err = c.client.SendMessage(ctx, jid, msg)
	return err
}

func (c *conn) SendImage(ctx context.Context, number string, data []byte, mimeType, caption string) error {
	jid, err := c.resolveJID(ctx, number)
	if err != nil {
		return err
	}
	uploadResp, err := c.client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}
	imageMsg := &waE2E.ImageMessage{
		URL:           &uploadResp.URL,
		DirectPath:    &uploadResp.DirectPath,
		MediaKey:      uploadResp.MediaKey,
		FileEncSHA256: uploadResp.FileEncSHA256,
		FileSHA256:    uploadResp.FileSHA256,
		FileLength:    &uploadResp.FileLength,
		Mimetype:      proto.String(mimeType),
	}
	if caption != "" {
		imageMsg.Caption = proto.String(caption)
	}
	_, err = c.client.SendMessage(ctx, jid, &waE2E.Message{ImageMessage: imageMsg})
	return err
}

func (c *conn) SendDocument(ctx context.Context, number string, data []byte, mimeType, fileName string) error {
	jid, err := c.resolveJID(ctx, number)
	if err != nil {
		return err
	}
	uploadResp, err := c.client.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return fmt.Errorf("upload document: %w", err)
	}
	if fileName == "" {
		exts, _ := mime.ExtensionsByType(mimeType)
		if len(exts) > 0 {
			fileName = "document" + exts[0]
		} else {
			fileName = "document"
		}
	}
	docMsg := &waE2E.DocumentMessage{
		URL:           &uploadResp.URL,
		DirectPath:    &uploadResp.DirectPath,
		MediaKey:      uploadResp.MediaKey,
		FileEncSHA256: uploadResp.FileEncSHA256,
		FileSHA256:    uploadResp.FileSHA256,
		FileLength:    &uploadResp.FileLength,
		Mimetype:      proto.String(mimeType),
		FileName:      proto.String(fileName),
	}
	_, err = c.client.SendMessage(ctx, jid, &waE2E.Message{DocumentMessage: docMsg})
	return err
}

func (c *conn) IsRegistered(ctx context.Context, number string) (bool, error) {
	resp, err := c.client.IsOnWhatsApp(ctx, []string{number})
	if err != nil {
		return false, fmt.Errorf("registration lookup: %w", err)
	}
	for _, item := range resp {
		if item.IsIn {
			return true, nil
		}
	}
	return false, nil
}

// resolveJID maps phone digits to a JID, asking the network when the cache
// has no fresh answer.
func (c *conn) resolveJID(ctx context.Context, number string) (types.JID, error) {
	digits := strings.TrimPrefix(number, "+")
	if cached, ok := jidCache.Load(digits); ok {
		entry := cached.(jidCacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.jid, nil
		}
		jidCache.Delete(digits)
	}

	resp, err := c.client.IsOnWhatsApp(ctx, []string{digits})
	if err != nil {
		c.log.Warn("jid lookup failed, using raw number", zap.String("number", digits), zap.Error(err))
		return types.ParseJID(digits + "@s.whatsapp.net")
	}

	resolved := types.EmptyJID
	for _, item := range resp {
		if item.JID.User != "" {
			resolved = item.JID
			break
		}
	}
	if resolved.IsEmpty() {
		jid, err := types.ParseJID(digits + "@s.whatsapp.net")
		if err != nil {
			return types.EmptyJID, fmt.Errorf("parse jid for %s: %w", digits, err)
		}
		resolved = jid
	}

	jidCache.Store(digits, jidCacheEntry{jid: resolved, expiresAt: time.Now().Add(jidCacheTTL)})
	return resolved, nil
}
