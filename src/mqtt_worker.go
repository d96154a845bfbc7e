package main

import (
	"context"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// recomputeTopic is where any message triggers a reload and re-publish
func recomputeTopic(device string) string {
	return "powertree/" + device + "/recompute"
}

// mqttWorker manages the MQTT connection and forwards recompute requests to a channel
func mqttWorker(
	ctx context.Context,
	cfg Config,
	recomputeChan chan<- string,
	clientChan chan<- mqtt.Client,
) {
	topic := recomputeTopic(cfg.Device)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:1883", cfg.MQTTBroker))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v\n", err)
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("Connected to MQTT broker at %s\n", cfg.MQTTBroker)

		// Send the new client to the sender worker
		select {
		case clientChan <- client:
			log.Println("Sent new MQTT client to sender worker")
		case <-ctx.Done():
			return
		}

		token := client.Subscribe(topic, 1, func(client mqtt.Client, msg mqtt.Message) {
			select {
			case recomputeChan <- string(msg.Payload()):
			case <-ctx.Done():
			}
		})
		if token.Wait() && token.Error() != nil {
			log.Printf("Failed to subscribe to topic %s: %v\n", topic, token.Error())
		} else {
			log.Printf("Subscribed to topic: %s\n", topic)
		}
	})

	client := mqtt.NewClient(opts)

	log.Printf("Connecting to MQTT broker at %s...\n", cfg.MQTTBroker)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("Failed to connect to MQTT broker: %v\n", token.Error())
		return
	}

	// Keep worker alive until context is done
	<-ctx.Done()

	if client.IsConnected() {
		client.Disconnect(250)
		log.Println("Disconnected from MQTT broker")
	}
}
