// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package storaged

import (
	"errors"
	"net/http"

	"github.com/godbus/dbus/v5"
	"github.com/siderolabs/gen/xerrors"

	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/machinery/constants"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
	"github.com/siderolabs/storagecfg/pkg/storage/solver"
)

// NotFoundTag tags errors about devices or volume groups missing in the config model.
type NotFoundTag struct{}

// InvalidTag tags errors about documents which can't be accepted.
type InvalidTag struct{}

// ConflictTag tags errors about names already taken.
type ConflictTag struct{}

// BadRequestTag tags errors about requests which can't be decoded.
type BadRequestTag struct{}

// tagError tags the errors of the storage packages.
func tagError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apimodel.ErrNotFound):
		return xerrors.NewTaggedf[NotFoundTag]("%w", err)
	case errors.Is(err, apimodel.ErrAlreadyExists):
		return xerrors.NewTaggedf[ConflictTag]("%w", err)
	case errors.Is(err, apimodel.ErrInvalid),
		errors.Is(err, storage.ErrInvalid),
		errors.Is(err, solver.ErrInvalidConfig),
		errors.Is(err, solver.ErrDeviceNotFound):
		return xerrors.NewTaggedf[InvalidTag]("%w", err)
	default:
		return err
	}
}

func httpStatus(err error) int {
	switch {
	case xerrors.TagIs[BadRequestTag](err):
		return http.StatusBadRequest
	case xerrors.TagIs[NotFoundTag](err):
		return http.StatusNotFound
	case xerrors.TagIs[ConflictTag](err):
		return http.StatusConflict
	case xerrors.TagIs[InvalidTag](err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// D-Bus error names.
const (
	DBusErrorNotFound = constants.DBusInterface + ".Error.NotFound"
	DBusErrorInvalid  = constants.DBusInterface + ".Error.Invalid"
	DBusErrorConflict = constants.DBusInterface + ".Error.Conflict"
	DBusErrorFailed   = constants.DBusInterface + ".Error.Failed"
)

func dbusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}

	name := DBusErrorFailed

	switch {
	case xerrors.TagIs[NotFoundTag](err):
		name = DBusErrorNotFound
	case xerrors.TagIs[ConflictTag](err):
		name = DBusErrorConflict
	case xerrors.TagIs[InvalidTag](err), xerrors.TagIs[BadRequestTag](err):
		name = DBusErrorInvalid
	}

	return dbus.NewError(name, []any{err.Error()})
}
