// Package cli implements wikictl, the out-of-band administration tool for
// the wiki's credential vault.
//
// Commands run one at a time against the gRPC admin endpoint:
//
//	wikictl ping
//	wikictl add --name Ada --url https://ada.example/ --role administrator
//	wikictl list [--json]
//	wikictl lookup https://ada.example/ [--json]
//
// Every command except ping needs an admin access token. It is taken from
// WIKICTL_TOKEN, then from the file given with -k, and finally read from
// the terminal without echo. Tokens are issued to administrators by the
// wiki at /meta/admin-token.
package cli
