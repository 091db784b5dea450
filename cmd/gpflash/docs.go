package main

// General API documentation for swaggo. Generate with `swag init -g cmd/gpflash/docs.go -o internal/httpapi/docs`.
//
// @title           gpflash API
// @version         1.0
// @description     Headless control of a GP2040-CE flashing station: status, firmware list, selection and quit.
//
// @contact.name   gpflash maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
