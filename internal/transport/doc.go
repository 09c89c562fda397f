// Package transport builds the HTTP clients used by the API providers.
//
// Requests go out directly by default. With a proxy address configured,
// every connection is dialled through a SOCKS5 proxy (golang.org/x/net/proxy),
// which lets crawls run behind Tor or an SSH tunnel. CheckProxy performs a
// short SOCKS5 handshake so a misconfigured proxy fails the run early.
package transport
