// Package network is the network collaborator of the bridge: DNS
// resolution against a configured server and TCP connections owned by
// guests.
package network
