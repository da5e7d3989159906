/*
Copyright 2024 Alexandre Mahdhaoui

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package vmrun

import (
	"context"
	"strconv"
)

func (c *Client) ListNetworkAdapters(ctx context.Context, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "listNetworkAdapters", opts)
}

// AddNetworkAdapter adds an adapter of adapterType (bridged, nat, hostonly,
// custom). hostNetwork is optional.
func (c *Client) AddNetworkAdapter(
	ctx context.Context,
	adapterType, hostNetwork string,
	opts ...CallOption,
) (Result, error) {
	options := []string{adapterType}
	if hostNetwork != "" {
		options = append(options, hostNetwork)
	}
	return c.vm(ctx, "addNetworkAdapter", opts, options...)
}

func (c *Client) SetNetworkAdapter(
	ctx context.Context,
	index int,
	adapterType, hostNetwork string,
	opts ...CallOption,
) (Result, error) {
	options := []string{strconv.Itoa(index), adapterType}
	if hostNetwork != "" {
		options = append(options, hostNetwork)
	}
	return c.vm(ctx, "setNetworkAdapter", opts, options...)
}

func (c *Client) DeleteNetworkAdapter(ctx context.Context, index int, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "deleteNetworkAdapter", opts, strconv.Itoa(index))
}

// ListHostNetworks lists host networks. It is not scoped to a VM.
func (c *Client) ListHostNetworks(ctx context.Context) (Result, error) {
	return c.host(ctx, "listHostNetworks", "")
}

func (c *Client) ListPortForwardings(ctx context.Context, hostNetwork string) (Result, error) {
	return c.host(ctx, "listPortForwardings", hostNetwork)
}

func (c *Client) SetPortForwarding(ctx context.Context, pf PortForwarding) (Result, error) {
	return c.host(ctx, "setPortForwarding", pf.HostNetwork, pf.tokens()...)
}

func (c *Client) DeletePortForwarding(
	ctx context.Context,
	hostNetwork, protocol string,
	hostPort int,
) (Result, error) {
	return c.host(ctx, "deletePortForwarding", hostNetwork, protocol, strconv.Itoa(hostPort))
}
