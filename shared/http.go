package shared

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type HttpService struct {
	Name string `json:"name"`
	Port string `json:"port"`
	App  *fiber.App
}

func NewHttpService(name string, port string) *HttpService {
	return &HttpService{
		Name: name,
		Port: port,
	}
}

func (h *HttpService) Init() {
	h.App = fiber.New(fiber.Config{
		AppName:               h.Name,
		DisableStartupMessage: true,
	})
}

func (h *HttpService) Use(args ...interface{}) {
	h.App.Use(args...)
}

func (h *HttpService) Routes(path string, handler fiber.Handler, method string) {
	switch method {
	case "GET":
		h.App.Get(path, handler)
	case "POST":
		h.App.Post(path, handler)
	case "PUT":
		h.App.Put(path, handler)
	case "DELETE":
		h.App.Delete(path, handler)
	default:
		h.App.Get(path, handler)
	}
}

func (h *HttpService) Start(onShutdown func()) error {
	if onShutdown != nil {
		h.App.Hooks().OnShutdown(func() error {
			onShutdown()
			return nil
		})
	}
	return h.App.Listen(fmt.Sprintf(":%s", h.Port))
}

func (h *HttpService) Shutdown() error {
	return h.App.Shutdown()
}
