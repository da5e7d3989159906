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

func either(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}

// Start powers on the VM, headless when noGUI is set.
func (c *Client) Start(ctx context.Context, noGUI bool, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "start", opts, either(noGUI, "nogui", "gui"))
}

// Stop powers off the VM.
func (c *Client) Stop(ctx context.Context, hard bool, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "stop", opts, either(hard, "hard", "soft"))
}

// Reset resets the VM.
func (c *Client) Reset(ctx context.Context, hard bool, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "reset", opts, either(hard, "hard", "soft"))
}

// Suspend suspends the VM.
func (c *Client) Suspend(ctx context.Context, hard bool, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "suspend", opts, either(hard, "hard", "soft"))
}

func (c *Client) Pause(ctx context.Context, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "pause", opts)
}

func (c *Client) Unpause(ctx context.Context, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "unpause", opts)
}
