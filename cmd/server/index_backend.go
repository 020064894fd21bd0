package main

import (
	"flowerchat.dev/internal/persistence/indexdb"
	persistlog "flowerchat.dev/internal/persistence/log"
	"flowerchat.dev/internal/space"
)

// multiJournal fans journal entries to the durable zstd log and, when
// enabled, the sqlite read-model index.
type multiJournal struct {
	a *persistlog.JournalLogger
	b *indexdb.SQLiteIndex
}

func (m multiJournal) WriteJournal(e space.JournalEntry) error {
	err := m.a.WriteJournal(e)
	if m.b != nil {
		_ = m.b.WriteJournal(e)
	}
	return err
}

type multiAudit struct {
	a *persistlog.AuditLogger
	b *indexdb.SQLiteIndex
}

func (m multiAudit) WriteAudit(e space.AuditEntry) error {
	err := m.a.WriteAudit(e)
	if m.b != nil {
		_ = m.b.WriteAudit(e)
	}
	return err
}
