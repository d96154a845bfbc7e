package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"maps"
	"slices"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ryansname/powertree/src/powertree"
)

// MQTTMessage represents an outgoing MQTT message
type MQTTMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// MQTTSender wraps a channel for sending MQTT messages with helper methods
type MQTTSender struct {
	ch chan<- MQTTMessage
}

// NewMQTTSender creates a new MQTTSender wrapping the given channel
func NewMQTTSender(ch chan<- MQTTMessage) *MQTTSender {
	return &MQTTSender{ch: ch}
}

// Send sends a raw MQTTMessage
func (s *MQTTSender) Send(msg MQTTMessage) {
	s.ch <- msg
}

type haDeviceConfig struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
}

type haEntityConfig struct {
	Name             string         `json:"name,omitempty"`
	DeviceClass      string         `json:"device_class,omitempty"`
	StateTopic       string         `json:"state_topic"`
	UnitOfMeasure    string         `json:"unit_of_measurement,omitempty"`
	ValueTemplate    string         `json:"value_template"`
	UniqueId         string         `json:"unique_id"`
	StateClass       string         `json:"state_class,omitempty"`
	DisplayPrecision int            `json:"suggested_display_precision,omitempty"`
	Icon             string         `json:"icon,omitempty"`
	Device           haDeviceConfig `json:"device"`
}

// entityKey turns a use case or profile name into a JSON key / unique id fragment
func entityKey(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r - 'A' + 'a'
		default:
			return '_'
		}
	}, name)
}

// entityKeys assigns every name a distinct key. Names are taken in sorted
// order; a name whose key is already used gets _2, _3, ... appended.
func entityKeys(names []string) map[string]string {
	keys := make(map[string]string, len(names))
	used := make(map[string]bool, len(names))
	for _, name := range slices.Sorted(slices.Values(names)) {
		base := entityKey(name)
		key := base
		for i := 2; used[key]; i++ {
			key = fmt.Sprintf("%s_%d", base, i)
		}
		used[key] = true
		keys[name] = key
	}
	return keys
}

func stateTopic(device string) string {
	return "homeassistant/sensor/" + device + "/state"
}

// CreateSensorEntity creates a Home Assistant sensor reading one key of the
// device's JSON state via MQTT discovery
func (s *MQTTSender) CreateSensorEntity(
	device, deviceModel string,
	entityName, entityClass, unit, jsonKey, icon string,
	displayPrecision int,
) error {
	config := haEntityConfig{
		Name:             entityName,
		DeviceClass:      entityClass,
		StateTopic:       stateTopic(device),
		UnitOfMeasure:    unit,
		ValueTemplate:    "{{ value_json." + jsonKey + " }}",
		UniqueId:         device + "_" + jsonKey,
		StateClass:       "measurement",
		DisplayPrecision: displayPrecision,
		Icon:             icon,
		Device: haDeviceConfig{
			Identifiers:  []string{device},
			Name:         device,
			Manufacturer: "Power Tree",
			Model:        deviceModel,
		},
	}

	payload, err := json.Marshal(config)
	if err != nil {
		return err
	}

	s.Send(MQTTMessage{
		Topic:   "homeassistant/sensor/" + device + "_" + jsonKey + "/config",
		Payload: payload,
		QoS:     2,
		Retain:  true,
	})
	return nil
}

// CreateEvaluationEntities announces one power sensor per use case and
// average power, current and life sensors per usage profile
func (s *MQTTSender) CreateEvaluationEntities(device string, m *powertree.Model) error {
	var deviceModel string
	if battery := m.BatteryNode(); battery != nil {
		deviceModel = battery.DisplayName()
	}

	useCaseKeys := entityKeys(m.UseCaseNames())
	for _, name := range m.UseCaseNames() {
		key := "use_case_" + useCaseKeys[name] + "_power"
		if err := s.CreateSensorEntity(device, deviceModel, name+" Power", "power", "mW", key, "", 3); err != nil {
			return err
		}
	}

	profileKeys := entityKeys(m.ProfileNames())
	for _, name := range m.ProfileNames() {
		prefix := "profile_" + profileKeys[name]
		if err := s.CreateSensorEntity(device, deviceModel, name+" Average Power", "power", "mW", prefix+"_power", "", 3); err != nil {
			return err
		}
		if err := s.CreateSensorEntity(device, deviceModel, name+" Average Current", "current", "mA", prefix+"_current", "", 3); err != nil {
			return err
		}
		if err := s.CreateSensorEntity(device, deviceModel, name+" Battery Life", "duration", "d", prefix+"_life", "mdi:battery-clock", 2); err != nil {
			return err
		}
	}
	return nil
}

// evaluationState flattens an evaluation into the device's JSON state.
// Unbounded or unknown battery life is published as null.
func evaluationState(ev *powertree.Evaluation) map[string]any {
	state := make(map[string]any, len(ev.Results)+3*len(ev.Estimates))
	useCaseKeys := entityKeys(slices.Collect(maps.Keys(ev.Results)))
	for name, res := range ev.Results {
		state["use_case_"+useCaseKeys[name]+"_power"] = res.TotalPowerMW
	}
	profileKeys := entityKeys(slices.Collect(maps.Keys(ev.Estimates)))
	for name, e := range ev.Estimates {
		prefix := "profile_" + profileKeys[name]
		state[prefix+"_power"] = e.AvgPowerMW
		state[prefix+"_current"] = e.AvgCurrentMA
		if e.Life == powertree.LifeFinite {
			state[prefix+"_life"] = e.LifeDays
		} else {
			state[prefix+"_life"] = nil
		}
	}
	return state
}

// PublishEvaluation sends the evaluation as the device's retained state
func (s *MQTTSender) PublishEvaluation(device string, ev *powertree.Evaluation) error {
	payload, err := json.Marshal(evaluationState(ev))
	if err != nil {
		return err
	}
	s.Send(MQTTMessage{
		Topic:   stateTopic(device),
		Payload: payload,
		QoS:     1,
		Retain:  true,
	})
	return nil
}

// mqttSenderWorker publishes outgoing messages, queuing them until a client connects
func mqttSenderWorker(
	ctx context.Context,
	outgoingChan <-chan MQTTMessage,
	clientChan <-chan mqtt.Client,
) {
	log.Println("MQTT sender worker started")

	var client mqtt.Client
	var messageQueue []MQTTMessage

	for {
		select {
		case newClient := <-clientChan:
			log.Println("MQTT sender worker received new client")
			client = newClient

			// Process any queued messages now that we have a client
			if client != nil && client.IsConnected() {
				queuedCount := len(messageQueue)
				for _, msg := range messageQueue {
					token := client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
					token.Wait()
					if token.Error() != nil {
						log.Printf("Failed to publish queued message to %s: %v\n", msg.Topic, token.Error())
					}
				}
				messageQueue = nil
				if queuedCount > 0 {
					log.Printf("MQTT sender worker processed %d queued messages\n", queuedCount)
				}
			}

		case msg := <-outgoingChan:
			if client != nil && client.IsConnected() {
				token := client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
				token.Wait()
				if token.Error() != nil {
					log.Printf("Failed to publish to %s: %v\n", msg.Topic, token.Error())
				}
			} else {
				messageQueue = append(messageQueue, msg)
				log.Printf("MQTT sender worker queued message (total queued: %d)\n", len(messageQueue))
			}

		case <-ctx.Done():
			log.Println("MQTT sender worker stopped")
			return
		}
	}
}
