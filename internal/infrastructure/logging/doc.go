// Package logging builds the structured logger shared by the data layer and
// the panama command.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stderr"   # stderr, stdout
//
// Logs default to stderr because stdout carries the command's report.
//
//	log := logging.New(cfg.Logging, version)
//	ctrl, err := store.Open(ctx, dbCfg, root, log.Component("database"))
//
// Never log credential passwords or the credential passphrase.
package logging
