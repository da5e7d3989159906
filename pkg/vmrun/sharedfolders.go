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

func (c *Client) SetSharedFolderState(
	ctx context.Context,
	shareName, hostPath string,
	mode SharedFolderMode,
	opts ...CallOption,
) (Result, error) {
	return c.vm(ctx, "setSharedFolderState", opts, shareName, hostPath, string(mode))
}

func (c *Client) AddSharedFolder(
	ctx context.Context,
	shareName, hostPath string,
	opts ...CallOption,
) (Result, error) {
	return c.vm(ctx, "addSharedFolder", opts, shareName, hostPath)
}

func (c *Client) RemoveSharedFolder(ctx context.Context, shareName string, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "removeSharedFolder", opts, shareName)
}

// EnableSharedFolders enables shared folders; runtime limits the change to the
// current power cycle.
func (c *Client) EnableSharedFolders(ctx context.Context, runtime bool, opts ...CallOption) (Result, error) {
	if runtime {
		return c.vm(ctx, "enableSharedFolders", opts, "runtime")
	}
	return c.vm(ctx, "enableSharedFolders", opts)
}

func (c *Client) DisableSharedFolders(ctx context.Context, runtime bool, opts ...CallOption) (Result, error) {
	if runtime {
		return c.vm(ctx, "disableSharedFolders", opts, "runtime")
	}
	return c.vm(ctx, "disableSharedFolders", opts)
}
