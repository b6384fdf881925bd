// Package memory provides persistence drivers that hold all data in memory.
//
// Data does not survive a restart. The drivers are used by tests throughout
// the module and by the runtime when it is configured with the "memory:" DSN.
package memory
