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

func (c *Client) ListSnapshots(ctx context.Context, showTree bool, opts ...CallOption) (Result, error) {
	if showTree {
		return c.vm(ctx, "listSnapshots", opts, "showTree")
	}
	return c.vm(ctx, "listSnapshots", opts)
}

func (c *Client) Snapshot(ctx context.Context, name string, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "snapshot", opts, name)
}

func (c *Client) DeleteSnapshot(
	ctx context.Context,
	name string,
	andDeleteChildren bool,
	opts ...CallOption,
) (Result, error) {
	if andDeleteChildren {
		return c.vm(ctx, "deleteSnapshot", opts, name, "andDeleteChildren")
	}
	return c.vm(ctx, "deleteSnapshot", opts, name)
}

func (c *Client) RevertToSnapshot(ctx context.Context, name string, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "revertToSnapshot", opts, name)
}
