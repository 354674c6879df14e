/*
Package notify sends leader alerts by mail through an SMTP relay.

Two alerts exist. A change alert names the old and new leader; a no-leader
alert names the last known leader and asks the operator to check the
cluster. Each kind has its own recipient list.

The From address is built from the host the alert is about, so mail from
different clusters sorts naturally in an inbox:

	change     leadercheck@<new leader>.<domain>
	no leader  leadercheck@<old leader>.<domain>

Delivery is attempted once, without STARTTLS or authentication, against a
relay that is normally the local MTA. Any failure is returned as a
*types.DeliveryError.
*/
package notify
