// Package mqtt adapts the paho MQTT client to the interface facade.
//
// This package manages:
//   - Connection to the broker, with paho's auto-reconnect after the first
//     successful handshake
//   - Subscribe, unsubscribe and publish, reporting broker refusals
//     separately from local failures
//   - Delivery of every inbound message to a single OnMessage callback
//   - Topic name and filter validation, and filter matching
//
// # Delivery
//
// paho delivers messages on its own goroutine, one at a time and in arrival
// order. The OnMessage callback runs on that goroutine: while it blocks, no
// other message is delivered.
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT)
//	client.SetOnMessage(func(m mqtt.Message) {
//	    log.Printf("received %s = %s", m.Topic, m.Payload)
//	})
//	if err := client.Connect(10 * time.Second); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Disconnect()
//
//	ok, err := client.Subscribe("sensors/+/temperature", 0)
package mqtt
