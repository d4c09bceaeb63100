// Package journal persists bridge events to a local SQLite database.
//
// Journaled kinds include session faults, subscription warnings,
// rejected commands, write timeouts and availability transitions.
// Values flowing through state topics are NOT journaled; that firehose
// belongs to the history sink.
//
// Writes are asynchronous and best-effort: the engine must never stall
// on disk I/O. Entries are dropped with a warning if the buffer fills.
//
// # Usage
//
//	j, err := journal.Open("/data/uabridge.db", logger)
//	if err != nil {
//	    return err
//	}
//	defer j.Close()
//	j.Record("write_timeout", "Sollwert/Temp", "22.5")
package journal
