// Package command defines the pairmesh-cli commands on urfave/cli/v2.
//
// Every command resolves the shared settings built in App's Before hook,
// calls the control API through connection.HTTPClient and renders the result
// with the selected output format.
package command
