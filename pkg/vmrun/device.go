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

import "context"

func (c *Client) TypeKeystrokesInGuest(ctx context.Context, keystrokes string, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "typeKeystrokesInGuest", opts, keystrokes)
}

func (c *Client) ConnectNamedDevice(ctx context.Context, deviceName string, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "connectNamedDevice", opts, deviceName)
}

func (c *Client) DisconnectNamedDevice(ctx context.Context, deviceName string, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "disconnectNamedDevice", opts, deviceName)
}

// CaptureScreen writes a screenshot of the guest to hostPath.
func (c *Client) CaptureScreen(ctx context.Context, hostPath string, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "captureScreen", opts, hostPath)
}

func (c *Client) WriteVariable(
	ctx context.Context,
	varType VariableType,
	name, value string,
	opts ...CallOption,
) (Result, error) {
	return c.vm(ctx, "writeVariable", opts, string(varType), name, value)
}

func (c *Client) ReadVariable(
	ctx context.Context,
	varType VariableType,
	name string,
	opts ...CallOption,
) (Result, error) {
	return c.vm(ctx, "readVariable", opts, string(varType), name)
}

// GetGuestIPAddress returns the guest IP in Output. With wait set, vmrun
// blocks until the guest reports an address.
func (c *Client) GetGuestIPAddress(ctx context.Context, wait bool, opts ...CallOption) (Result, error) {
	if wait {
		return c.vm(ctx, "getGuestIPAddress", opts, "-wait")
	}
	return c.vm(ctx, "getGuestIPAddress", opts)
}
