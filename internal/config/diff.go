package config

import (
	"reflect"
	"strings"
)

// ConfigDiff describes what changed between two configs. Log level and
// roster changes are applied live; everything else is reported in
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	RosterChanged   bool
	ContactsAdded   []string
	ContactsRemoved []string

	// RestartRequired names the top-level sections that changed but are only
	// read at startup (e.g., "server.listen_addr", "providers").
	RestartRequired []string
}

// HotReloadable reports whether anything changed that can be applied without
// a restart.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.RosterChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Contacts are compared case-insensitively, as the roster matches them.
	oldContacts := contactSet(old.Roster.Contacts)
	newContacts := contactSet(new.Roster.Contacts)
	for _, c := range new.Roster.Contacts {
		if _, ok := oldContacts[strings.ToLower(strings.TrimSpace(c))]; !ok {
			d.ContactsAdded = append(d.ContactsAdded, c)
		}
	}
	for _, c := range old.Roster.Contacts {
		if _, ok := newContacts[strings.ToLower(strings.TrimSpace(c))]; !ok {
			d.ContactsRemoved = append(d.ContactsRemoved, c)
		}
	}
	d.RosterChanged = len(d.ContactsAdded) > 0 || len(d.ContactsRemoved) > 0 ||
		old.Roster.PhoneticThreshold != new.Roster.PhoneticThreshold ||
		old.Roster.FuzzyThreshold != new.Roster.FuzzyThreshold

	oldSrv, newSrv := old.Server, new.Server
	oldSrv.LogLevel, newSrv.LogLevel = "", ""
	if oldSrv.ListenAddr != newSrv.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
		oldSrv.ListenAddr, newSrv.ListenAddr = "", ""
	}
	if !reflect.DeepEqual(oldSrv, newSrv) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.NLP != new.NLP {
		d.RestartRequired = append(d.RestartRequired, "nlp")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	return d
}

func contactSet(contacts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(contacts))
	for _, c := range contacts {
		set[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	return set
}
