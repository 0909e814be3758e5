// Package whatsmeow adapts the whatsmeow client to the session layer's
// connection contract. Each outlet gets its own sqlite credential store and
// its own client; the session manager owns all reconnect policy, so
// automatic reconnection in the client itself stays off.
package whatsmeow

import (
	"context"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	waCompanionReg "go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"

	"github.com/blastline/blastline/internal/credstore"
	"github.com/blastline/blastline/internal/session"
)

type noopLogger struct{}

func (n *noopLogger) Debugf(msg string, args ...interface{}) {}
func (n *noopLogger) Infof(msg string, args ...interface{})  {}
func (n *noopLogger) Warnf(msg string, args ...interface{})  {}
func (n *noopLogger) Errorf(msg string, args ...interface{}) {}
func (n *noopLogger) Sub(module string) waLog.Logger         { return n }

var deviceInfoMu sync.Mutex

// DeviceIdentity is how paired sessions present themselves to the network.
type DeviceIdentity struct {
	OSName   string
	Platform string
}

type Dialer struct {
	log      *zap.Logger
	creds    *credstore.Store
	identity DeviceIdentity
}

func NewDialer(log *zap.Logger, creds *credstore.Store, identity DeviceIdentity) *Dialer {
	return &Dialer{log: log, creds: creds, identity: identity}
}

// Dial opens the outlet's credential store and builds a client around it.
// The returned connection is not yet connected; the manager drives Connect
// and receives pairing and lifecycle events through sink.
func (d *Dialer) Dial(ctx context.Context, outletID string, sink session.EventSink) (session.Conn, error) {
	clientLog := &noopLogger{}
	container, err := sqlstore.New(ctx, "sqlite3", d.creds.DSN(outletID), clientLog)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	d.applyIdentity()

	client := whatsmeow.NewClient(device, clientLog)
	client.EnableAutoReconnect = false

	conn := newConn(d.log.With(zap.String("outlet_id", outletID)), outletID, client, sink)
	client.AddEventHandler(conn.handleEvent)

	if device.ID == nil || device.ID.IsEmpty() {
		// No stored session: pairing will be needed, start the QR feed
		// before the transport comes up.
		qrCtx, cancel := context.WithCancel(context.Background())
		qrChan, err := client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open qr channel: %w", err)
		}
		conn.qrCancel = cancel
		go conn.watchQR(qrChan)
	}

	return conn, nil
}

// applyIdentity sets the global device properties the client reads during
// pairing. Serialized because the whatsmeow store keeps them in package
// state.
func (d *Dialer) applyIdentity() {
	if d.identity.OSName == "" {
		return
	}
	deviceInfoMu.Lock()
	defer deviceInfoMu.Unlock()
	store.SetOSInfo(d.identity.OSName, [3]uint32{1, 0, 0})
	store.DeviceProps.PlatformType = mapPlatformType(d.identity.Platform)
}

func mapPlatformType(platform string) *waCompanionReg.DeviceProps_PlatformType {
	switch platform {
	case "CHROME":
		return waCompanionReg.DeviceProps_CHROME.Enum()
	case "FIREFOX":
		return waCompanionReg.DeviceProps_FIREFOX.Enum()
	case "SAFARI":
		return waCompanionReg.DeviceProps_SAFARI.Enum()
	case "EDGE":
		return waCompanionReg.DeviceProps_EDGE.Enum()
	case "IPAD":
		return waCompanionReg.DeviceProps_IPAD.Enum()
	case "ANDROID_PHONE":
		return waCompanionReg.DeviceProps_ANDROID_PHONE.Enum()
	case "IOS_PHONE":
		return waCompanionReg.DeviceProps_IOS_PHONE.Enum()
	default:
		return waCompanionReg.DeviceProps_DESKTOP.Enum()
	}
}
