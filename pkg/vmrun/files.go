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

func (c *Client) FileExistsInGuest(ctx context.Context, path string, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "fileExistsInGuest", opts, path)
}

func (c *Client) DirectoryExistsInGuest(ctx context.Context, path string, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "directoryExistsInGuest", opts, path)
}

func (c *Client) DeleteFileInGuest(ctx context.Context, path string, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "deleteFileInGuest", opts, path)
}

func (c *Client) CreateDirectoryInGuest(ctx context.Context, path string, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "createDirectoryInGuest", opts, path)
}

func (c *Client) DeleteDirectoryInGuest(ctx context.Context, path string, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "deleteDirectoryInGuest", opts, path)
}

// CreateTempfileInGuest creates a temporary file in the guest; Output holds its path.
func (c *Client) CreateTempfileInGuest(ctx context.Context, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "createTempfileInGuest", opts)
}

func (c *Client) ListDirectoryInGuest(ctx context.Context, path string, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "listDirectoryInGuest", opts, path)
}

// CopyFileFromHostToGuest copies hostPath on the host to guestPath in the guest.
func (c *Client) CopyFileFromHostToGuest(
	ctx context.Context,
	hostPath, guestPath string,
	opts ...CallOption,
) (Result, error) {
	return c.vm(ctx, "CopyFileFromHostToGuest", opts, hostPath, guestPath)
}

// CopyFileFromGuestToHost copies guestPath in the guest to hostPath on the host.
func (c *Client) CopyFileFromGuestToHost(
	ctx context.Context,
	guestPath, hostPath string,
	opts ...CallOption,
) (Result, error) {
	return c.vm(ctx, "CopyFileFromGuestToHost", opts, guestPath, hostPath)
}

func (c *Client) RenameFileInGuest(
	ctx context.Context,
	originalName, newName string,
	opts ...CallOption,
) (Result, error) {
	return c.vm(ctx, "renameFileInGuest", opts, originalName, newName)
}
