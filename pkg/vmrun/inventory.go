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

// List lists running VMs. It is not scoped to a VM.
func (c *Client) List(ctx context.Context) (Result, error) {
	return c.host(ctx, "list", "")
}

func (c *Client) UpgradeVM(ctx context.Context, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "upgradevm", opts)
}

func (c *Client) InstallTools(ctx context.Context, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "installTools", opts)
}

func (c *Client) CheckToolsState(ctx context.Context, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "checkToolsState", opts)
}

func (c *Client) DeleteVM(ctx context.Context, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "deleteVM", opts)
}

// Clone clones the VM to o.DestinationPath.
func (c *Client) Clone(ctx context.Context, o CloneOptions, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "clone", opts, o.tokens()...)
}

// DownloadPhotonVM downloads the Photon OS VM to destinationPath.
func (c *Client) DownloadPhotonVM(ctx context.Context, destinationPath string) (Result, error) {
	return c.host(ctx, "downloadPhotonVM", destinationPath)
}
