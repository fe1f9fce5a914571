// Package cli implements the interactive scanner console.
//
// The console reads one command per line. A line that is itself a token
// payload is scanned directly, which lets keyboard-emulating barcode readers
// feed the console without a command prefix.
//
//	scan <payload>   validate and record a payload
//	sync             upload pending ledger entries
//	refresh          download the offline secret cache
//	status           show connectivity and ledger counts
//	help | exit
//
// A background watcher pings the server every OnlineCheckInterval and
// switches the scanner between online and offline validation. While online,
// pending entries are synced every SyncInterval.
package cli
