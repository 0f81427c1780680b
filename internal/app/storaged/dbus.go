// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package storaged

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/siderolabs/gen/xerrors"
	"go.uber.org/zap"

	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/machinery/constants"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
)

const dbusPath = dbus.ObjectPath(constants.DBusObjectPath)

// PropertyGeneration is the D-Bus property holding the store generation.
const PropertyGeneration = "Generation"

// storageObject is the storage service exported on D-Bus, documents are passed as JSON strings.
type storageObject struct {
	ctx   context.Context //nolint:containedctx
	store *Store
}

func (o *storageObject) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(o.ctx, constants.DBusCallTimeout)
}

func encodeDocument(v any) (string, *dbus.Error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", dbusError(err)
	}

	return string(out), nil
}

// GetConfig returns the storage config.
func (o *storageObject) GetConfig() (string, *dbus.Error) {
	return encodeDocument(o.store.Config())
}

// SetConfig replaces the storage config and returns the validation warnings.
func (o *storageObject) SetConfig(doc string) ([]string, *dbus.Error) {
	cfg, err := storage.Parse([]byte(doc))
	if err != nil {
		return nil, dbusError(xerrors.NewTaggedf[BadRequestTag]("%w", err))
	}

	warnings, err := o.store.SetConfig(cfg)

	return warnings, dbusError(err)
}

// GetConfigModel returns the API model of the storage config.
func (o *storageObject) GetConfigModel() (string, *dbus.Error) {
	ctx, cancel := o.callContext()
	defer cancel()

	m, err := o.store.ConfigModel(ctx)
	if err != nil {
		return "", dbusError(err)
	}

	return encodeDocument(m)
}

// SetConfigModel replaces the storage config by the one of the API model.
func (o *storageObject) SetConfigModel(doc string) ([]string, *dbus.Error) {
	var m apimodel.Config

	if err := json.Unmarshal([]byte(doc), &m); err != nil {
		return nil, dbusError(xerrors.NewTaggedf[BadRequestTag]("failed to decode config model: %w", err))
	}

	warnings, err := o.store.SetConfigModel(&m)

	return warnings, dbusError(err)
}

// SolveConfigModel returns the solved API model.
func (o *storageObject) SolveConfigModel(doc string) (string, *dbus.Error) {
	var m apimodel.Config

	if err := json.Unmarshal([]byte(doc), &m); err != nil {
		return "", dbusError(xerrors.NewTaggedf[BadRequestTag]("failed to decode config model: %w", err))
	}

	ctx, cancel := o.callContext()
	defer cancel()

	solved, err := o.store.SolveConfigModel(ctx, &m)
	if err != nil {
		return "", dbusError(err)
	}

	return encodeDocument(solved)
}

// Probe reloads the system inventory and returns it.
func (o *storageObject) Probe() (string, *dbus.Error) {
	ctx, cancel := o.callContext()
	defer cancel()

	sys, err := o.store.Probe(ctx)
	if err != nil {
		return "", dbusError(err)
	}

	return encodeDocument(sys)
}

func connectDBus(address string) (*dbus.Conn, error) {
	if address == "" {
		return dbus.ConnectSystemBus()
	}

	return dbus.Connect(address)
}

// exportDBus exports the store on the connection and claims the service name.
func exportDBus(ctx context.Context, conn *dbus.Conn, store *Store) (*prop.Properties, error) {
	obj := &storageObject{ctx: ctx, store: store}

	if err := conn.Export(obj, dbusPath, constants.DBusInterface); err != nil {
		return nil, fmt.Errorf("failed to export storage object: %w", err)
	}

	props, err := prop.Export(conn, dbusPath, prop.Map{
		constants.DBusInterface: {
			PropertyGeneration: {
				Value:    store.Generation(),
				Writable: false,
				Emit:     prop.EmitTrue,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export properties: %w", err)
	}

	node := &introspect.Node{
		Name: constants.DBusObjectPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       constants.DBusInterface,
				Methods:    introspect.Methods(obj),
				Properties: props.Introspection(constants.DBusInterface),
			},
		},
	}

	if err = conn.Export(introspect.NewIntrospectable(node), dbusPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("failed to export introspection: %w", err)
	}

	reply, err := conn.RequestName(constants.DBusBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to request name %q: %w", constants.DBusBusName, err)
	}

	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("name %q is already taken", constants.DBusBusName)
	}

	return props, nil
}

// serveDBus exports the store on the bus and keeps the generation property current until ctx is canceled.
func (svc *Service) serveDBus(ctx context.Context) error {
	conn, err := connectDBus(svc.cfg.DBus.Address)
	if err != nil {
		return fmt.Errorf("failed to connect to D-Bus: %w", err)
	}

	defer conn.Close() //nolint:errcheck

	updates := svc.store.Watch(ctx)

	props, err := exportDBus(ctx, conn, svc.store)
	if err != nil {
		return err
	}

	svc.logger.Info("exported on D-Bus", zap.String("name", constants.DBusBusName), zap.String("path", constants.DBusObjectPath))

	for generation := range updates {
		props.SetMust(constants.DBusInterface, PropertyGeneration, generation)
	}

	return nil
}
