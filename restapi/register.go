package restapi

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

type HTTPVerb int

const (
	Unknown HTTPVerb = iota
	GET
	DELETE
	POST
	PUT
	PATCH
)

// RestMethod pairs one verb+path with its handler.
type RestMethod struct {
	Verb    HTTPVerb
	Path    string
	Handler func(c *gin.Context)
}

var restMethods = make(map[string]RestMethod)

// RegisterMethod is a helper function for Register.
func RegisterMethod(verb HTTPVerb, path string, h func(c *gin.Context)) error {
	m := RestMethod{
		Verb:    verb,
		Path:    path,
		Handler: h,
	}
	return Register(m)
}

// Register your REST method using this function.
func Register(m RestMethod) error {
	key := fmt.Sprintf("%d_%s", m.Verb, m.Path)
	if _, exists := restMethods[key]; exists {
		return fmt.Errorf("can't add %s, an existing handler in REST method map exists", key)
	}
	restMethods[key] = m
	return nil
}

// RestMethods returns the registered methods.
func RestMethods() []RestMethod {
	methods := make([]RestMethod, 0, len(restMethods))
	for _, m := range restMethods {
		methods = append(methods, m)
	}
	return methods
}
