// audit.go: audit trail for plugin load, skip, integrity and bind events
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"time"

	"github.com/agilira/argus"
)

// Audit event names written by the host.
const (
	AuditPluginSkipped     = "plugin_skipped"
	AuditPluginLoaded      = "plugin_loaded"
	AuditIntegrityVerified = "plugin_integrity_verified"
	AuditIntegrityFailed   = "plugin_integrity_failed"
	AuditRoutesBound       = "plugin_routes_bound"
	AuditHostClosed        = "host_closed"
)

// Auditor records host events to an argus audit trail.
//
// A nil *Auditor is valid and discards every event, so callers never need to
// check whether auditing was configured.
type Auditor struct {
	logger *argus.AuditLogger
}

// NewAuditor creates an auditor writing to outputFile. An empty outputFile
// returns a nil auditor.
func NewAuditor(outputFile string) (*Auditor, error) {
	if outputFile == "" {
		return nil, nil
	}

	auditLogger, err := argus.NewAuditLogger(argus.AuditConfig{
		Enabled:       true,
		OutputFile:    outputFile,
		MinLevel:      argus.AuditInfo,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		IncludeStack:  false,
	})
	if err != nil {
		return nil, NewConfigFileError(outputFile, "failed to create audit logger", err)
	}
	return &Auditor{logger: auditLogger}, nil
}

// Record writes one event.
func (a *Auditor) Record(event string, context map[string]interface{}) {
	if a == nil || a.logger == nil {
		return
	}
	a.logger.LogSecurityEvent(event, "Native plugin host event", context)
}

// Close flushes and closes the audit trail.
func (a *Auditor) Close() error {
	if a == nil || a.logger == nil {
		return nil
	}
	return a.logger.Close()
}
