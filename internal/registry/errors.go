package registry

import "errors"

// ErrUnknownSettingKey is returned when PUT /api/settings/{key} names a
// key outside the closed allow-list (spec §6, §7 bad-input).
var ErrUnknownSettingKey = errors.New("registry: unknown setting key")
