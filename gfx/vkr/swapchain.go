// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"context"
	"fmt"
	"math"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	vk "github.com/devblok/vulkan"
)

// maxFramesInFlight is how many frames the CPU may record ahead of the GPU
const maxFramesInFlight = 2

// frameSync holds the synchronisation objects of one frame in flight
type frameSync struct {
	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore
	inFlight       vk.Fence
}

// Swapchain implements gfx.Swapchain. Acquire blocks on the fence of
// the frame that last used the image, so a slot handed out is never
// read by the GPU anymore.
type Swapchain struct {
	device    vk.Device
	queue     vk.Queue
	swapchain vk.Swapchain
	format    vk.Format
	extent    gfx.Extent

	images []vk.Image
	views  []vk.ImageView

	frames         []frameSync
	frame          int
	imagesInFlight []vk.Fence

	acquired  int
	submitted bool
}

func newSwapchain(dev vk.Device, pd vk.PhysicalDevice, surface vk.Surface, queue vk.Queue, cfg Config) (*Swapchain, error) {
	var surfaceCapabilities vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &surfaceCapabilities)); err != nil {
		return nil, fmt.Errorf("vk.GetPhysicalDeviceSurfaceCapabilities(): %w", err)
	}
	surfaceCapabilities.Deref()
	surfaceCapabilities.CurrentExtent.Deref()

	extent := gfx.Extent{Width: cfg.Width, Height: cfg.Height}
	// the surface decides the size unless it reports the special value
	if surfaceCapabilities.CurrentExtent.Width != math.MaxUint32 {
		extent.Width = surfaceCapabilities.CurrentExtent.Width
		extent.Height = surfaceCapabilities.CurrentExtent.Height
	}
	if extent.Width == 0 || extent.Height == 0 {
		return nil, fmt.Errorf("vulkan: surface of %dx%d: %w", extent.Width, extent.Height, gfx.ErrSurfaceLost)
	}

	var surfaceFormatCount uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &surfaceFormatCount, nil)); err != nil {
		return nil, fmt.Errorf("vk.GetPhysicalDeviceSurfaceFormats(): %w", err)
	}
	if surfaceFormatCount == 0 {
		return nil, fmt.Errorf("vk.GetPhysicalDeviceSurfaceFormats(): no formats: %w", core.ErrNotFound)
	}
	surfaceFormats := make([]vk.SurfaceFormat, surfaceFormatCount)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &surfaceFormatCount, surfaceFormats)); err != nil {
		return nil, fmt.Errorf("vk.GetPhysicalDeviceSurfaceFormats(): %w", err)
	}
	surfaceFormats[0].Deref()
	imageFormat := surfaceFormats[0].Format
	if imageFormat == vk.FormatUndefined {
		imageFormat = vk.FormatB8g8r8a8Unorm
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for i := 0; i < len(compositeAlphaFlags); i++ {
		alphaFlags := vk.CompositeAlphaFlags(compositeAlphaFlags[i])
		if surfaceCapabilities.SupportedCompositeAlpha&alphaFlags != 0 {
			compositeAlpha = compositeAlphaFlags[i]
			break
		}
	}

	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         surface,
		MinImageCount:   swapchainImageCount(cfg.SwapchainSize, surfaceCapabilities.MinImageCount, surfaceCapabilities.MaxImageCount),
		ImageFormat:     imageFormat,
		ImageColorSpace: surfaceFormats[0].ColorSpace,
		ImageExtent: vk.Extent2D{
			Width:  extent.Width,
			Height: extent.Height,
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:     vk.SurfaceTransformIdentityBit,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
	}

	var swapchain vk.Swapchain
	if err := vk.Error(vk.CreateSwapchain(dev, &scci, nil, &swapchain)); err != nil {
		return nil, fmt.Errorf("vk.CreateSwapchain(): %w", err)
	}

	s := &Swapchain{
		device:    dev,
		queue:     queue,
		swapchain: swapchain,
		format:    imageFormat,
		extent:    extent,
		acquired:  -1,
	}
	if err := s.createImages(); err != nil {
		s.destroy()
		return nil, err
	}
	if err := s.createSynchronization(); err != nil {
		s.destroy()
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) createImages() error {
	var numImages uint32
	if err := vk.Error(vk.GetSwapchainImages(s.device, s.swapchain, &numImages, nil)); err != nil {
		return fmt.Errorf("vk.GetSwapchainImages(num): %w", err)
	}
	s.images = make([]vk.Image, numImages)
	if err := vk.Error(vk.GetSwapchainImages(s.device, s.swapchain, &numImages, s.images)); err != nil {
		return fmt.Errorf("vk.GetSwapchainImages(images): %w", err)
	}

	for _, image := range s.images {
		view, err := newImageView(s.device, image, s.format, vk.ImageAspectColorBit)
		if err != nil {
			return err
		}
		s.views = append(s.views, view)
	}
	s.imagesInFlight = make([]vk.Fence, len(s.images))
	return nil
}

func (s *Swapchain) createSynchronization() error {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}

	for idx := 0; idx < maxFramesInFlight; idx++ {
		var fs frameSync
		if err := vk.Error(vk.CreateSemaphore(s.device, &sci, nil, &fs.imageAvailable)); err != nil {
			return fmt.Errorf("vk.CreateSemaphore(): %w", err)
		}
		if err := vk.Error(vk.CreateSemaphore(s.device, &sci, nil, &fs.renderFinished)); err != nil {
			vk.DestroySemaphore(s.device, fs.imageAvailable, nil)
			return fmt.Errorf("vk.CreateSemaphore(): %w", err)
		}
		if err := vk.Error(vk.CreateFence(s.device, &fci, nil, &fs.inFlight)); err != nil {
			vk.DestroySemaphore(s.device, fs.imageAvailable, nil)
			vk.DestroySemaphore(s.device, fs.renderFinished, nil)
			return fmt.Errorf("vk.CreateFence(): %w", err)
		}
		s.frames = append(s.frames, fs)
	}
	return nil
}

// Len implements interface
func (s *Swapchain) Len() int {
	return len(s.images)
}

// Extent implements interface
func (s *Swapchain) Extent() gfx.Extent {
	return s.extent
}

// Acquire implements interface
func (s *Swapchain) Acquire(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.acquired >= 0 {
		return 0, fmt.Errorf("vulkan: slot %d is still acquired: %w", s.acquired, core.ErrInvalidData)
	}
	fs := s.frames[s.frame]
	if err := vk.Error(vk.WaitForFences(s.device, 1, []vk.Fence{fs.inFlight}, vk.True, math.MaxUint64)); err != nil {
		return 0, fmt.Errorf("vk.WaitForFences(): %w", err)
	}

	var imageIndex uint32
	ret := vk.AcquireNextImage(s.device, s.swapchain, math.MaxUint64, fs.imageAvailable, vk.NullFence, &imageIndex)
	switch ret {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		return 0, fmt.Errorf("vk.AcquireNextImage(): %w", gfx.ErrSurfaceLost)
	default:
		return 0, fmt.Errorf("vk.AcquireNextImage(): %w", vk.Error(ret))
	}

	// an earlier frame may still be rendering into this image
	if fence := s.imagesInFlight[imageIndex]; fence != vk.NullFence && fence != fs.inFlight {
		if err := vk.Error(vk.WaitForFences(s.device, 1, []vk.Fence{fence}, vk.True, math.MaxUint64)); err != nil {
			return 0, fmt.Errorf("vk.WaitForFences(): %w", err)
		}
	}
	s.imagesInFlight[imageIndex] = fs.inFlight
	s.acquired = int(imageIndex)
	s.submitted = false
	return s.acquired, nil
}

// submit queues cb for the acquired slot, it waits for the image to be
// available and signals the frame fence when done.
func (s *Swapchain) submit(slot int, cb vk.CommandBuffer) error {
	if slot != s.acquired {
		return fmt.Errorf("vulkan: submit to slot %d, acquired is %d: %w", slot, s.acquired, core.ErrInvalidData)
	}
	if s.submitted {
		return fmt.Errorf("vulkan: slot %d submitted twice: %w", slot, core.ErrInvalidData)
	}
	fs := s.frames[s.frame]
	if err := vk.Error(vk.ResetFences(s.device, 1, []vk.Fence{fs.inFlight})); err != nil {
		return fmt.Errorf("vk.ResetFences(): %w", err)
	}

	submit := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{fs.imageAvailable},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageTransferBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{fs.renderFinished},
	}}
	if err := vk.Error(vk.QueueSubmit(s.queue, 1, submit, fs.inFlight)); err != nil {
		return fmt.Errorf("vk.QueueSubmit(): %w", err)
	}
	s.submitted = true
	return nil
}

// Present implements interface
func (s *Swapchain) Present(slot int) error {
	if slot != s.acquired || !s.submitted {
		return fmt.Errorf("vulkan: present of slot %d which was not submitted: %w", slot, core.ErrInvalidData)
	}
	fs := s.frames[s.frame]
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{fs.renderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.swapchain},
		PImageIndices:      []uint32{uint32(slot)},
	}

	s.acquired = -1
	s.submitted = false
	s.frame = (s.frame + 1) % len(s.frames)

	switch ret := vk.QueuePresent(s.queue, &presentInfo); ret {
	case vk.Success, vk.Suboptimal:
		return nil
	case vk.ErrorOutOfDate:
		return fmt.Errorf("vk.QueuePresent(): %w", gfx.ErrSurfaceLost)
	default:
		return fmt.Errorf("vk.QueuePresent(): %w", vk.Error(ret))
	}
}

func (s *Swapchain) destroy() {
	for _, fs := range s.frames {
		vk.DestroySemaphore(s.device, fs.imageAvailable, nil)
		vk.DestroySemaphore(s.device, fs.renderFinished, nil)
		vk.DestroyFence(s.device, fs.inFlight, nil)
	}
	s.frames = nil
	for _, view := range s.views {
		vk.DestroyImageView(s.device, view, nil)
	}
	s.views = nil
	// swapchain images are owned by the swapchain
	s.images = nil
	vk.DestroySwapchain(s.device, s.swapchain, nil)
}
