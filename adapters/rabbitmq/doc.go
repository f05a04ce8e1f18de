/*
Package rabbitmq provides a RabbitMQ event bus for placeholder requests.
Events go through a topic exchange; every subscription gets an exclusive,
auto-deleted queue bound to its namespaces. It includes an auto-reconnect
session and supports optional header propagation via a bus.HeaderPropagator.
*/
package rabbitmq
