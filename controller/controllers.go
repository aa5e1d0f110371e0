// controller/controllers.go
package controller

type Controllers struct {
	Gateway *GatewayController
	Admin   *AdminController
}
