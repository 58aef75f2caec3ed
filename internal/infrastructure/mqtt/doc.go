// Package mqtt wraps the paho client as the broker session of the Thing
// runtime.
//
// MQTT carries Things in both directions. The mqttbinding package publishes
// property state and events of local Things and answers request envelopes;
// the mqttclient protocol client sends those envelopes to reach remote
// Things. Both share one Client and the Topics scheme:
//
//	{prefix}/state/{thing}/{property}     retained property values
//	{prefix}/event/{thing}/{event}        event emissions
//	{prefix}/request/{client}/{id}        request envelopes
//	{prefix}/response/{client}/{id}       response envelopes
//	{prefix}/system/status                retained Status, online or offline
//
// The session reconnects on its own and replays its subscriptions. An
// offline Status is left as the will, so consumers see the runtime go away
// even when it crashes. Traffic counters are exposed through Stats.
//
// The broker may be external (Mosquitto) or the embedded one from the
// broker package. Use TLS (cfg.Broker.TLS) outside a lab network; payloads
// have no protection beyond the transport.
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("%s: %s", topic, payload)
//	        return nil
//	    })
package mqtt
