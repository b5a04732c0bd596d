package ws

import (
	"reflect"
)

var typeRegistry = map[string]reflect.Type{}

func init() {
	// Register all client frame types
	RegisterType(&MessageOpenGroup{})
	RegisterType(&MessageCloseGroup{})
	RegisterType(&MessageLoadOlder{})
	RegisterType(&MessageSend{})
	RegisterType(&MessageDelete{})
	RegisterType(&MessageConfirmDelete{})
	RegisterType(&MessageMarkRead{})
	RegisterType(&MessageScrolled{})
	RegisterType(&MessagePing{})
}

func RegisterType(msg Message) {
	typeRegistry[msg.GetType()] = reflect.TypeOf(msg).Elem()
}

// GetTypeRegistry returns the type registry for testing
func GetTypeRegistry() map[string]reflect.Type {
	return typeRegistry
}
