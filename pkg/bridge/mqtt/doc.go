// Package mqtt bridges a transport to an MQTT broker.
//
// Topics, relative to the broker URL prefix:
//
//	<node>/msg/<kind>   messages received from the MCU, wire encoded
//	<node>/json/<kind>  the same messages as JSON envelopes
//	<node>/cmd          wire encoded messages to send to the MCU
//	<node>/cmd/<kind>   JSON payload of the kind to send to the MCU
//	<node>/status       retained "online" or "offline"
package mqtt
